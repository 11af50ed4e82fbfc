package logger

import "context"

type BaseLogger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// ContextInterface bundles a context.Context with a leveled logger so that
// storage-layer code can both log and honor cancellation with one argument.
type ContextInterface interface {
	BaseLogger
	Ctx() context.Context
	UpdateContextToLoggerContext(context.Context) ContextInterface
}

type Logger interface {
	BaseLogger
	// CDebugf logs a message at debug level, with a context and
	// formatting args.
	CDebugf(ctx context.Context, format string, args ...interface{})
	// CInfof logs a message at info level, with a context and formatting args.
	CInfof(ctx context.Context, format string, args ...interface{})
	// CWarningf logs a message at warning level, with a context and
	// formatting args.
	CWarningf(ctx context.Context, format string, args ...interface{})
	// CErrorf logs a message at error level, with a context and
	// formatting args.
	CErrorf(ctx context.Context, format string, args ...interface{})

	// Returns a logger that is like the current one, except with
	// more logging depth added on.
	CloneWithAddedDepth(depth int) Logger
}

type Context struct {
	ctx context.Context
	Logger
}

func NewContext(c context.Context, l Logger) Context {
	return Context{ctx: c, Logger: l}
}

var _ ContextInterface = Context{}

func (c Context) Ctx() context.Context {
	return c.ctx
}

func (c Context) UpdateContextToLoggerContext(ctx context.Context) ContextInterface {
	return NewContext(ctx, c.Logger)
}

func (c Context) Debug(format string, arg ...interface{}) {
	c.Logger.CloneWithAddedDepth(1).CDebugf(c.ctx, format, arg...)
}

func (c Context) Info(format string, arg ...interface{}) {
	c.Logger.CloneWithAddedDepth(1).CInfof(c.ctx, format, arg...)
}

func (c Context) Warning(format string, arg ...interface{}) {
	c.Logger.CloneWithAddedDepth(1).CWarningf(c.ctx, format, arg...)
}

func (c Context) Error(format string, arg ...interface{}) {
	c.Logger.CloneWithAddedDepth(1).CErrorf(c.ctx, format, arg...)
}

type Null struct{}

func NewNull() *Null {
	return &Null{}
}

// Verify Null fully implements the Logger interface.
var _ Logger = (*Null)(nil)

func (l *Null) Debug(format string, args ...interface{})                      {}
func (l *Null) Info(format string, args ...interface{})                       {}
func (l *Null) Warning(format string, args ...interface{})                    {}
func (l *Null) Error(format string, args ...interface{})                      {}
func (l *Null) CDebugf(ctx context.Context, fmt string, arg ...interface{})   {}
func (l *Null) CInfof(ctx context.Context, fmt string, arg ...interface{})    {}
func (l *Null) CWarningf(ctx context.Context, fmt string, arg ...interface{}) {}
func (l *Null) CErrorf(ctx context.Context, fmt string, arg ...interface{})   {}

func (l *Null) CloneWithAddedDepth(depth int) Logger { return l }
