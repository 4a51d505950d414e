// Command luxicle runs the Luxicle API server and its maintenance tasks.
package main

import "github.com/robby3000/luxicle/cmd/luxicle/commands"

func main() {
	commands.Execute()
}
