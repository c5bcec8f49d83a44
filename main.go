package main

import "github.com/prestigewebb/twilio-manager/cmd"

func main() {
	cmd.Execute()
}
