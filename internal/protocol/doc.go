// Package protocol holds the line vocabulary and framing rules of the
// console relay. It has no state and is shared by the relay server
// (internal/relay) and the relay client (internal/cli).
//
// Every message is one UTF-8 line terminated by "\n". Multi-line replies are
// framed as
//
//	OUTPUT:<n>
//	<n payload lines>
//	END_OUTPUT
//
// and the same shape is used for the COMMANDS block returned by
// LIST_COMMANDS. State-change notifications ("STATE_CHANGED:<state>") may be
// pushed to subscribed connections at any time, so readers must be prepared
// to see them before a reply.
package protocol
