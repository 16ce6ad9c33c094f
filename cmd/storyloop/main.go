// Command storyloop runs collaborative storytelling sessions from a terminal
// and inspects the stories they produce.
package main

func main() {
	Execute()
}
