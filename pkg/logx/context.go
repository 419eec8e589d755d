package logx

import "context"

type ctxKey struct{}

// NewContext returns a copy of ctx carrying fields in addition to any
// fields already attached. Entries built with FromContext or WithContext
// include them.
func NewContext(ctx context.Context, fields Fields) context.Context {
	merged := make(Fields, len(fields))
	if parent, ok := ctx.Value(ctxKey{}).(Fields); ok {
		for k, v := range parent {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, ctxKey{}, merged)
}

// FromContext starts an entry on the default logger with the fields
// attached to ctx.
func FromContext(ctx context.Context) *Entry {
	return defaultLogger.WithContext(ctx)
}

func (l *Logger) WithContext(ctx context.Context) *Entry {
	return newEntry(l).WithContext(ctx)
}

func contextFields(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxKey{}).(Fields)
	return fields
}
