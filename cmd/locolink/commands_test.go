package main

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    command
		wantOK  bool
		wantErr bool
	}{
		{name: "loco and state", line: "3 2", want: command{Loco: 3, State: 2}, wantOK: true},
		{name: "state only", line: "4", want: command{Loco: 1, State: 4}, wantOK: true},
		{name: "extra spaces", line: "  5\t 0 \n", want: command{Loco: 5, State: 0}, wantOK: true},
		{name: "out of range kept", line: "12 9", want: command{Loco: 12, State: 9}, wantOK: true},
		{name: "blank", line: "   "},
		{name: "comment", line: "# set signals"},
		{name: "not a number", line: "3 green", wantErr: true},
		{name: "too many fields", line: "1 2 3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseCommand(tt.line, 1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("parseCommand(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}
