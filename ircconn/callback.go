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

package ircconn

import "strings"

// AddCallback registers a callback for an event code ("JOIN", "NICK", "311",
// or "*" for all events) and returns an id that can be passed to
// RemoveCallback. eventcode is upper-cased, so the lower-case symbolic error
// codes ("err_bannedfromchan", ...) are only seen through "*". Safe for
// concurrent use.
func (c *Conn) AddCallback(eventcode string, callback func(*Event)) int {
	eventcode = strings.ToUpper(eventcode)

	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if c.events == nil {
		c.events = make(map[string]map[int]func(*Event))
	}
	if _, ok := c.events[eventcode]; !ok {
		c.events[eventcode] = make(map[int]func(*Event))
	}
	id := c.idCounter
	c.idCounter++
	c.events[eventcode][id] = callback
	return id
}

// RemoveCallback removes callback id from eventcode. Returns false if not
// found; this is not an error, since a callback may have already fired and
// been removed by its own one-shot wrapper.
func (c *Conn) RemoveCallback(eventcode string, id int) bool {
	eventcode = strings.ToUpper(eventcode)

	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if event, ok := c.events[eventcode]; ok {
		if _, ok := event[id]; ok {
			delete(event, id)
			return true
		}
	}
	return false
}

// runCallbacks executes every callback registered against event.Code, then
// every callback registered against "*".
func (c *Conn) runCallbacks(event *Event) {
	c.eventsMu.Lock()
	var matched []func(*Event)
	if handlers, ok := c.events[event.Code]; ok {
		for _, h := range handlers {
			matched = append(matched, h)
		}
	}
	if handlers, ok := c.events["*"]; ok {
		for _, h := range handlers {
			matched = append(matched, h)
		}
	}
	c.eventsMu.Unlock()

	for _, h := range matched {
		h(event)
	}
}

// OneShot registers a callback for eventcode that removes itself the first
// time an event with that code arrives, whether or not the callback acts on
// it; register uses it to wait for RPL_WELCOME. Listeners that filter
// events and must keep waiting for a matching one use AddCallback and
// RemoveCallback instead. The returned cancel function removes the listener
// if it never fires.
func (c *Conn) OneShot(eventcode string, callback func(*Event)) (cancel func()) {
	var id int
	id = c.AddCallback(eventcode, func(e *Event) {
		c.RemoveCallback(eventcode, id)
		callback(e)
	})
	return func() { c.RemoveCallback(eventcode, id) }
}
