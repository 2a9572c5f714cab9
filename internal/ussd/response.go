package ussd

import "fmt"

// Response is one rendered screen. Continue screens keep the session open for
// another keypress; the rest end it.
type Response struct {
	Continue bool
	Text     string
}

// Con renders a screen that expects more input.
func Con(text string) Response {
	return Response{Continue: true, Text: text}
}

// Conf is Con with fmt.Sprintf formatting.
func Conf(format string, args ...any) Response {
	return Con(fmt.Sprintf(format, args...))
}

// End renders a terminal screen.
func End(text string) Response {
	return Response{Text: text}
}

// Endf is End with fmt.Sprintf formatting.
func Endf(format string, args ...any) Response {
	return End(fmt.Sprintf(format, args...))
}

// String returns the gateway wire form, "CON ..." or "END ...".
func (r Response) String() string {
	if r.Continue {
		return "CON " + r.Text
	}
	return "END " + r.Text
}
