// Command aqsync keeps Aqademiq planners and Google calendars converged:
// it polls for remote changes, mirrors them locally, pushes local edits
// back, and surfaces true divergences as conflicts for a person to settle.
package main

func main() {
	Execute()
}
