// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "10.3-" + runtime.GOOS + "/" + runtime.GOARCH

// DefaultLogFile is the CSV log used when no other file has been chosen
const DefaultLogFile = "SaveLog.csv"
