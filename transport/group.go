package transport

import (
	"go.uber.org/multierr"

	"github.com/luma/eventmsg/protocol"
)

// Group writes to several transports as one.
type Group []Writer

func (g Group) Write(frame []byte) (err error) {
	for _, w := range g {
		err = multierr.Append(err, w.Write(frame))
	}
	return err
}

func (g Group) WriteExcept(source protocol.SourceID, frame []byte) (err error) {
	for _, w := range g {
		err = multierr.Append(err, w.WriteExcept(source, frame))
	}
	return err
}
