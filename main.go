package main

import "github.com/AliHaSSan-13/Netflix-scrapper/cmd"

func main() {
	cmd.Execute()
}
