package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// setupGlobals installs console, timers and the bridge object
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}
	if err := r.vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	if err := r.vm.Set("clearTimeout", r.clearTimeout); err != nil {
		return err
	}
	return r.vm.Set("bridge", r.newBridge())
}

func (r *Runtime) newBridge() *goja.Object {
	channels := make([]string, 0, len(r.surface))
	for id := range r.surface {
		channels = append(channels, id)
	}
	sort.Strings(channels)

	b := r.vm.NewObject()
	_ = b.Set("id", r.link.ID().String())
	_ = b.Set("title", r.link.Title())
	_ = b.Set("channels", channels)
	_ = b.Set("send", r.bridgeSend)
	_ = b.Set("invoke", r.bridgeInvoke)
	_ = b.Set("on", r.bridgeOn)
	_ = b.Set("handle", r.bridgeHandle)
	_ = b.Set("ready", func(goja.FunctionCall) goja.Value {
		r.link.Ready()
		return goja.Undefined()
	})
	_ = b.Set("close", func(goja.FunctionCall) goja.Value {
		r.link.Close()
		return goja.Undefined()
	})

	w := r.vm.NewObject()
	_ = w.Set("bounds", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(map[string]interface{}(r.bounds.Payload()))
	})
	_ = w.Set("setBounds", func(call goja.FunctionCall) goja.Value {
		b, ok := types.BoundsFromPayload(exportPayload(call.Argument(0)))
		if !ok {
			panic(r.vm.NewTypeError("setBounds requires {x, y, width, height}"))
		}
		r.bounds = b
		r.link.SetBounds(b)
		return goja.Undefined()
	})
	_ = w.Set("show", func(goja.FunctionCall) goja.Value {
		r.link.SetVisible(true)
		return goja.Undefined()
	})
	_ = w.Set("hide", func(goja.FunctionCall) goja.Value {
		r.link.SetVisible(false)
		return goja.Undefined()
	})
	_ = w.Set("minimize", func(goja.FunctionCall) goja.Value {
		r.link.Minimize()
		return goja.Undefined()
	})
	_ = w.Set("on", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		fn := r.callable(call.Argument(1), "window.on")
		r.windowListeners[event] = append(r.windowListeners[event], fn)
		return goja.Undefined()
	})
	_ = b.Set("window", w)
	return b
}

func (r *Runtime) bridgeSend(call goja.FunctionCall) goja.Value {
	channel := call.Argument(0).String()
	if err := r.link.Send(channel, exportPayload(call.Argument(1))); err != nil {
		panic(r.vm.NewGoError(fmt.Errorf("send %q: %w", channel, err)))
	}
	return goja.Undefined()
}

func (r *Runtime) bridgeInvoke(call goja.FunctionCall) goja.Value {
	channel := call.Argument(0).String()
	payload := exportPayload(call.Argument(1))
	promise, resolve, reject := r.vm.NewPromise()

	go func() {
		out, err := r.link.Invoke(r.ctx, channel, payload)
		r.enqueue(func() {
			if err != nil {
				reject(r.vm.NewGoError(fmt.Errorf("invoke %q: %w", channel, err)))
				return
			}
			resolve(r.vm.ToValue(map[string]interface{}(out)))
		})
	}()
	return r.vm.ToValue(promise)
}

func (r *Runtime) bridgeOn(call goja.FunctionCall) goja.Value {
	channel := r.surfaceChannel(call.Argument(0))
	fn := r.callable(call.Argument(1), "on")
	r.listeners[channel] = append(r.listeners[channel], fn)
	return goja.Undefined()
}

func (r *Runtime) bridgeHandle(call goja.FunctionCall) goja.Value {
	channel := r.surfaceChannel(call.Argument(0))
	r.handlers[channel] = r.callable(call.Argument(1), "handle")
	return goja.Undefined()
}

// surfaceChannel rejects channels outside the worker's surface with the
// same generic error a denied send gets
func (r *Runtime) surfaceChannel(v goja.Value) string {
	channel := v.String()
	if !r.surface[channel] {
		panic(r.vm.NewGoError(fmt.Errorf("channel %q: %w", channel, types.ErrDenied)))
	}
	return channel
}

func (r *Runtime) callable(v goja.Value, what string) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(r.vm.NewTypeError(what + " requires a function"))
	}
	return fn
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")
		fields := []zap.Field{zap.String("source", "console")}

		switch level {
		case "error":
			r.logger.Error(msg, fields...)
		case "warn":
			r.logger.Warn(msg, fields...)
		case "debug":
			r.logger.Debug(msg, fields...)
		default:
			r.logger.Info(msg, fields...)
		}
		return goja.Undefined()
	}
}
