package main

import (
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// command is one line read from stdin.
type command struct {
	Loco  int
	State int
}

// parseCommand accepts "LOCO STATE" or a bare "STATE", which is sent to
// defaultLoco. Blank lines and lines starting with '#' yield ok == false
// and no error.
func parseCommand(line string, defaultLoco int) (cmd command, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return command{}, false, nil
	}

	fields := strings.Fields(line)
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return command{}, false, pkgerrors.Errorf("not a number: %q", f)
		}
		nums = append(nums, n)
	}

	switch len(nums) {
	case 1:
		return command{Loco: defaultLoco, State: nums[0]}, true, nil
	case 2:
		return command{Loco: nums[0], State: nums[1]}, true, nil
	default:
		return command{}, false, pkgerrors.Errorf("want \"LOCO STATE\" or \"STATE\", got %d fields", len(nums))
	}
}
