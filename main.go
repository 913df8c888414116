package main

import "github.com/vibast-solutions/ms-go-course-payments/cmd"

func main() {
	cmd.Execute()
}
