/*
Package sandbox provides isolated module namespaces for plugins.

# Overview

Each plugin gets its own Sandbox: a goja runtime with an AMD-style module
loader. Modules are JavaScript sources fetched relative to the sandbox's
context path and registered through define():

	define(["shared-x", "./util"], function (sharedX, util) {
		return {
			init: function () { sharedX.register("plugin-a"); }
		};
	});

Before the entry module loads, the host seeds the sandbox's definition queue
with modules already provided by the shared namespace (see Injector). A
queued definition is taken in preference to fetching, so shared modules are
never fetched or instantiated twice.

# Globals

Sandboxed code sees define (with define.amd), require, and a console routed
to the host logger. require accepts a module name and returns the loaded
module, or an array of names plus a callback. process, module and exports
are not globals; module and exports are only available as dependencies.

# Limits

Every Require and Start call runs under Config.ScriptTimeout. When the
deadline passes or the caller's context ends, the runtime is interrupted and
pending fetches are cancelled.

# Registry

Registry holds the sandboxes of one host by name. It is passed explicitly to
the components that need it; there is no package-level registry.
*/
package sandbox
