// filestorectl is the operator CLI for the filestored daemon. It talks
// to the running daemon exclusively over the admin control socket --
// never over the file-storage wire protocol itself.
package main

import "github.com/nitrescov/filestored/cmd/filestorectl/commands"

func main() {
	commands.Execute()
}
