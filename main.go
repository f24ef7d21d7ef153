package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/bnema/ephemera/internal/adapters/in/cli"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	cli.Execute(version, commit, date)
}
