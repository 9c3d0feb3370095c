package core

import "github.com/google/uuid"

// SessionID identifies one signaling connection (a transport session).
// A participant that reconnects gets a new one.
type SessionID string

func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

func (s SessionID) String() string { return string(s) }
