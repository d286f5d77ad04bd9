package main

import "github.com/Manu343726/servoemu/cmd"

func main() {
	cmd.Execute()
}
