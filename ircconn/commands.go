package ircconn

// Join sends JOIN for channel, with an optional key.
func (c *Conn) Join(channel, key string) {
	if key != "" {
		c.SendRawf("JOIN %s %s", channel, key)
		return
	}
	c.SendRawf("JOIN %s", channel)
}

// Part sends PART for channel with an optional reason.
func (c *Conn) Part(channel, reason string) {
	if reason != "" {
		c.SendRawf("PART %s :%s", channel, reason)
		return
	}
	c.SendRawf("PART %s", channel)
}

// Kick sends KICK for nick on channel with an optional reason.
func (c *Conn) Kick(nick, channel, reason string) {
	if reason != "" {
		c.SendRawf("KICK %s %s :%s", channel, nick, reason)
		return
	}
	c.SendRawf("KICK %s %s", channel, nick)
}

// Topic sets the channel topic.
func (c *Conn) Topic(channel, topic string) {
	c.SendRawf("TOPIC %s :%s", channel, topic)
}

// Say sends a PRIVMSG.
func (c *Conn) Say(target, message string) {
	c.SendRawf("PRIVMSG %s :%s", target, message)
}

// Notice sends a NOTICE.
func (c *Conn) Notice(target, message string) {
	c.SendRawf("NOTICE %s :%s", target, message)
}

// Action sends a CTCP ACTION (/me) to target.
func (c *Conn) Action(target, message string) {
	c.SendRawf("PRIVMSG %s :\x01ACTION %s\x01", target, message)
}

// Nick requests a nickname change. The server-confirmed nick (GetNick)
// only updates once the server's NICK reply is observed.
func (c *Conn) Nick(newNick string) {
	c.SendRawf("NICK %s", newNick)
}

// Whois issues a WHOIS query for nick.
func (c *Conn) Whois(nick string) {
	c.SendRawf("WHOIS %s", nick)
}

// Names issues a NAMES query for channel.
func (c *Conn) Names(channel string) {
	c.SendRawf("NAMES %s", channel)
}

// Mode sets or queries modes for target.
func (c *Conn) Mode(target string, modestring ...string) {
	if len(modestring) == 0 {
		c.SendRawf("MODE %s", target)
		return
	}
	args := target
	for _, m := range modestring {
		args += " " + m
	}
	c.SendRaw("MODE " + args)
}
