package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints step-by-step instructions for copying the
// auth_token and ct0 cookies out of a logged-in browser
func WriteCookieGuide(w io.Writer) {
	line := strings.Repeat("=", 72)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "X SESSION COOKIE GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "tweetpull reads timelines with your browser session. It needs two cookies.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Log in at https://x.com in your browser")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Safari: enable the Develop menu in Settings, then Cmd+Option+I")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 3: Open the stored cookies for https://x.com")
	fmt.Fprintln(w, "   • Chrome: Application > Storage > Cookies")
	fmt.Fprintln(w, "   • Firefox: Storage > Cookies")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 4: Copy these values")
	fmt.Fprintln(w, "   • auth_token  (40 hex characters, HttpOnly)")
	fmt.Fprintln(w, "   • ct0         (the CSRF token, usually 160 characters)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SECURITY")
	fmt.Fprintln(w, "   • These cookies give full access to your account. Never share them.")
	fmt.Fprintln(w, "   • Logging out in the browser invalidates auth_token.")
	fmt.Fprintln(w, "   • Saved cookies live in the system keyring or an encrypted file.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "You can also export %s and %s instead of saving them.\n", EnvAuthToken, EnvCSRFToken)
	fmt.Fprintln(w, line)
}
