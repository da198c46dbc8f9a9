package store

import "time"

// TransitionRow is one journaled occupancy change
type TransitionRow struct {
	ID    int64     `json:"id"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Count int       `json:"count"`
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
}
