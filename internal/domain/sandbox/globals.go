package sandbox

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// setupGlobals installs the loader globals and removes host facilities
func (s *Sandbox) setupGlobals() error {
	for _, name := range []string{"process", "module", "exports"} {
		if err := s.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	define := s.vm.ToValue(s.define).(*goja.Object)
	if err := define.Set("amd", s.vm.NewObject()); err != nil {
		return err
	}
	if err := s.vm.Set("define", define); err != nil {
		return err
	}

	s.require = s.vm.ToValue(s.requireModule)
	if err := s.vm.Set("require", s.require); err != nil {
		return err
	}
	if err := s.vm.Set("requirejs", s.require); err != nil {
		return err
	}

	if s.config.EnableConsole {
		console := s.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, s.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := s.vm.Set("console", console); err != nil {
			return err
		}
	}

	// Timers are no-ops: nothing drives an event loop after a call returns
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	if err := s.vm.Set("setTimeout", noop); err != nil {
		return err
	}
	return s.vm.Set("setInterval", noop)
}

// define implements define(name?, deps?, factory)
func (s *Sandbox) define(call goja.FunctionCall) goja.Value {
	args := call.Arguments
	if len(args) == 0 {
		panic(s.vm.NewTypeError("define requires a factory"))
	}

	factory := args[len(args)-1]
	rest := args[:len(args)-1]

	var def Definition
	if len(rest) > 0 {
		if name, ok := rest[0].Export().(string); ok {
			def.Name = name
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		def.Deps = s.toNames(rest[0])
	}

	if fn, ok := goja.AssertFunction(factory); ok {
		if def.Deps == nil && factory.ToObject(s.vm).Get("length").ToInteger() > 0 {
			def.Deps = []string{"require", "exports", "module"}
		}
		def.Factory = func(_ *goja.Runtime, deps []goja.Value) (goja.Value, error) {
			return fn(goja.Undefined(), deps...)
		}
	} else {
		def.Factory = func(*goja.Runtime, []goja.Value) (goja.Value, error) {
			return factory, nil
		}
	}

	if def.Name != "" {
		s.queue = append(s.queue, def)
		return goja.Undefined()
	}
	if s.anonymous != nil {
		panic(s.vm.NewTypeError("mismatched anonymous define() in one script"))
	}
	s.anonymous = &def
	return goja.Undefined()
}

// requireModule implements require(name) and require([names], callback)
func (s *Sandbox) requireModule(call goja.FunctionCall) goja.Value {
	if s.opCtx == nil {
		panic(s.vm.NewTypeError("require called outside a module load"))
	}

	first := call.Argument(0)
	if _, isList := first.Export().([]interface{}); !isList {
		value, err := s.load(s.opCtx, first.String())
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		return value
	}

	names := s.toNames(first)
	values := make([]goja.Value, len(names))
	for i, name := range names {
		value, err := s.load(s.opCtx, name)
		if err != nil {
			panic(s.vm.NewGoError(err))
		}
		values[i] = value
	}
	if callback, ok := goja.AssertFunction(call.Argument(1)); ok {
		if _, err := callback(goja.Undefined(), values...); err != nil {
			panic(s.vm.NewGoError(err))
		}
	}
	return goja.Undefined()
}

func (s *Sandbox) toNames(v goja.Value) []string {
	list, ok := v.Export().([]interface{})
	if !ok {
		panic(s.vm.NewTypeError("dependency list must be an array"))
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			panic(s.vm.NewTypeError("dependency names must be strings"))
		}
		names = append(names, name)
	}
	return names
}

// makeConsoleFunc creates a console function that records and logs its arguments
func (s *Sandbox) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		s.consoleMu.Lock()
		s.console = append(s.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		s.consoleMu.Unlock()

		switch level {
		case "warn":
			s.logger.Warn(msg, zap.String("source", "console"))
		case "error":
			s.logger.Error(msg, zap.String("source", "console"))
		case "debug":
			s.logger.Debug(msg, zap.String("source", "console"))
		default:
			s.logger.Info(msg, zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}
