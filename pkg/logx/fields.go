package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Fields apply in order; a repeated key
// is written twice and the last one wins in most readers.
type Field func(e *zerolog.Event)

func String(k, v string) Field        { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field       { return func(e *zerolog.Event) { e.Int(k, v) } }
func Uint64(k string, v uint64) Field { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field     { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err is a no-op for a nil error.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Item tags an event with a scheduled item id.
func Item(id uint32) Field { return func(e *zerolog.Event) { e.Uint32("item", id) } }

// Quiz tags an event with a quiz id.
func Quiz(id uint32) Field { return func(e *zerolog.Event) { e.Uint32("quiz", id) } }

// Channel tags an event with a destination, usually "guild/#channel".
func Channel(dest string) Field { return func(e *zerolog.Event) { e.Str("channel", dest) } }
