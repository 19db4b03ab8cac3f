/*
   deacon: a native Go devcontainer orchestrator
   Copyright (C) 2026  The deacon authors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.
*/

// Package main houses the entrypoint for the deacon CLI.
package main

import (
	"os"

	"github.com/get2knowio/deacon/internal/cli"
)

const AppName string = "deacon"
const AppVersion string = "0.1.0"

func main() {
	os.Exit(int(cli.Execute(AppName, AppVersion, os.Args[1:])))
}
