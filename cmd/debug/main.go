package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sensegrid/sense-controller/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command string
	var roomID, hours, minutes int
	flag.StringVar(&dbPath, "db", "data/sense.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: age-acs, vacate-room, status")
	flag.IntVar(&roomID, "room", 0, "Room ID for vacate-room")
	flag.IntVar(&hours, "hours", 9, "How many hours to backdate AC timestamps")
	flag.IntVar(&minutes, "minutes", 20, "How many minutes ago the room was vacated")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of sense-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/sense.db')")
		fmt.Println("  -cmd string\tCommand to run: age-acs, vacate-room, status")
		fmt.Println("  -room int\tRoom ID for vacate-room")
		fmt.Println("  -hours int\tHours to backdate running AC timestamps (age-acs)")
		fmt.Println("  -minutes int\tMinutes since the room was vacated (vacate-room)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "age-acs":
		err = db.AgeACTimestampsCLI(dbPath, hours)
	case "vacate-room":
		if roomID == 0 {
			fmt.Println("Error: room ID is required")
			os.Exit(1)
		}
		err = db.VacateRoomCLI(dbPath, roomID, minutes)
	case "status":
		err = db.DumpStatusCLI(dbPath)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
