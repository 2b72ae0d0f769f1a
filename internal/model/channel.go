package model

import "strings"

// Channel identifies the sales system an order came from.
type Channel string

const (
	ChannelWeb     Channel = "site_web"
	ChannelMobile  Channel = "application_mobile"
	ChannelStore   Channel = "boutique_physique"
	ChannelUnknown Channel = "inconnu"
)

// Channels lists the known channels in detection order.
var Channels = []Channel{ChannelWeb, ChannelMobile, ChannelStore}

// Tag returns the filename tag producers prefix order ids with.
func (c Channel) Tag() string {
	switch c {
	case ChannelWeb:
		return "WEB"
	case ChannelMobile:
		return "MOB"
	case ChannelStore:
		return "BOU"
	}
	return ""
}

// Known reports whether c is one of the three sales channels.
func (c Channel) Known() bool {
	return c == ChannelWeb || c == ChannelMobile || c == ChannelStore
}

// ParseChannel maps a declared channel value to a Channel. Unrecognized values map to ChannelUnknown.
func ParseChannel(s string) Channel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ChannelWeb), "web":
		return ChannelWeb
	case string(ChannelMobile), "mobile":
		return ChannelMobile
	case string(ChannelStore), "in-store", "instore", "store":
		return ChannelStore
	}
	return ChannelUnknown
}
