package main

import "github.com/ValentinKolb/ltree/cmd"

func main() {
	cmd.Execute()
}
