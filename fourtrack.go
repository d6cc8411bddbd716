// The main package for fourtrack
package main

import (
	"fourtrack/app"
)

func main() {
	app.Execute()
}
