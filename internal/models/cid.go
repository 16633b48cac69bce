package models

import (
	"fmt"
	"strings"
)

// CID is the composite channel identifier in "type:id" form.
type CID string

func NewCID(channelType, channelID string) CID {
	return CID(channelType + ":" + channelID)
}

func ParseCID(raw string) (CID, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid cid %q", ErrDecode, raw)
	}
	return CID(raw), nil
}

func (c CID) Type() string {
	parts := strings.SplitN(string(c), ":", 2)
	return parts[0]
}

func (c CID) ID() string {
	parts := strings.SplitN(string(c), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

func (c CID) String() string {
	return string(c)
}
