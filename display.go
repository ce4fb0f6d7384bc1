package relay

type (
	// Display receives the human-readable outcome of every directive,
	// payload and transport event.
	Display interface {
		Display(msg string)
	}

	// DisplayFunc adapts a function to Display.
	DisplayFunc func(msg string)
)

func (fn DisplayFunc) Display(msg string) {
	fn(msg)
}
