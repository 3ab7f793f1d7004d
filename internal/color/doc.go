// Package color holds the lipgloss palette and styles shared by the test
// reporter and the interactive console.
//
// Colors are adaptive: Initialize tells lipgloss whether the terminal has a
// dark background, and every style picks the matching shade. Setting NO_COLOR
// disables styling entirely; VALHEIMCLI_THEME=dark|light forces a theme.
//
//	color.Initialize(true)
//	fmt.Println(color.PassedStyle.Render("PASSED"))
package color
