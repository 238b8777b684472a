// Copyright (c) 2024 Jerzy Dąbrowski
// Based on original work by Thomas Jager, 2009. All rights reserved.
//
// This project is a fork of the original go-ircevent library created by Thomas Jager.
// Redistribution and use in source and binary forms, with or without modification, are permitted provided
// that the following conditions are met:
//
//    - Redistributions of source code must retain the above copyright notice, this list of conditions,
//      and the following disclaimer.
//    - Redistributions in binary form must reproduce the above copyright notice, this list of conditions,
//      and the following disclaimer in the documentation and/or other materials provided with the distribution.
//    - Neither the name of the original authors nor the names of its contributors may be used to endorse
//      or promote products derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED "AS IS" WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT
// LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE, AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE COPYRIGHT HOLDERS OR CONTRIBUTORS BE LIABLE FOR ANY CLAIM, DAMAGES, OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT, OR OTHERWISE, ARISING FROM, OUT OF, OR IN CONNECTION WITH THE SOFTWARE
// OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package ircconn is the Connection Instance: it owns one TCP/TLS socket to
// an IRC server and the line-level client, and reports liveness and
// disconnect cause to whatever owns it (normally a bridgedclient.Client).
package ircconn

import (
	"regexp"
	"strings"
)

// Event represents a single parsed IRC line.
type Event struct {
	Code      string
	Raw       string
	Nick      string // <nick>
	Host      string // <host>
	Source    string // <nick>!<user>@<host>
	User      string // <user>
	Arguments []string
	Tags      map[string]string
}

// Message returns the last argument (the trailing parameter), or "" if
// there are none.
func (e *Event) Message() string {
	if len(e.Arguments) == 0 {
		return ""
	}
	return e.Arguments[len(e.Arguments)-1]
}

var ircFormat = regexp.MustCompile(`[\x02\x1F\x0F\x16\x1D\x1E]|\x03(\d\d?(,\d\d?)?)?`)

// MessageWithoutFormat is Message with IRC formatting codes (bold, color,
// etc.) stripped.
func (e *Event) MessageWithoutFormat() string {
	if len(e.Arguments) == 0 {
		return ""
	}
	return ircFormat.ReplaceAllString(e.Arguments[len(e.Arguments)-1], "")
}

func unescapeTagValue(value string) string {
	value = strings.Replace(value, "\\:", ";", -1)
	value = strings.Replace(value, "\\s", " ", -1)
	value = strings.Replace(value, "\\\\", "\\", -1)
	value = strings.Replace(value, "\\r", "\r", -1)
	value = strings.Replace(value, "\\n", "\n", -1)
	return value
}

// parseToEvent parses one raw IRC protocol line into an Event.
func parseToEvent(msg string) (*Event, error) {
	msg = strings.TrimSuffix(msg, "\n")
	msg = strings.TrimSuffix(msg, "\r")
	event := &Event{Raw: msg}

	if len(msg) < 1 {
		return nil, errMalformed
	}

	if msg[0] == '@' {
		i := strings.Index(msg, " ")
		if i == -1 {
			return nil, errMalformed
		}
		event.Tags = make(map[string]string)
		for _, data := range strings.Split(msg[1:i], ";") {
			parts := strings.SplitN(data, "=", 2)
			if len(parts) == 1 {
				event.Tags[parts[0]] = ""
			} else {
				event.Tags[parts[0]] = unescapeTagValue(parts[1])
			}
		}
		msg = msg[i+1:]
	}

	if msg[0] == ':' {
		i := strings.Index(msg, " ")
		if i == -1 {
			return nil, errMalformed
		}
		event.Source = msg[1:i]
		msg = msg[i+1:]

		if ei, aj := strings.Index(event.Source, "!"), strings.Index(event.Source, "@"); ei > -1 && aj > -1 && ei < aj {
			event.Nick = event.Source[0:ei]
			event.User = event.Source[ei+1 : aj]
			event.Host = event.Source[aj+1:]
		}
	}

	split := strings.SplitN(msg, " :", 2)
	args := strings.Split(split[0], " ")
	event.Code = strings.ToUpper(args[0])
	event.Arguments = args[1:]
	if len(split) > 1 {
		event.Arguments = append(event.Arguments, split[1])
	}
	return event, nil
}
