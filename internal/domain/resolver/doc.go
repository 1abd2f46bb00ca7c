/*
Package resolver discovers the transitive module dependencies of a plugin's
entry module and reports which of them the shared namespace already provides.

Resolution is a pump over a deptree.Tree: claim the next unresolved node,
fetch its source, extract the names listed in its define([...]) call, add
them as children, mark the node resolved, repeat. Names in the global
snapshot are resolved without fetching. A module whose source cannot be
fetched is assumed to be provided elsewhere and is resolved anyway, so one
unreachable dependency never blocks a plugin.

	r := resolver.New(fetcher, resolver.Options{FetchTimeout: 10 * time.Second})
	result, err := r.Resolve(ctx, resolver.Request{
		Entry:    "main",
		Locator:  sb.Locator(),
		Snapshot: global.Snapshot(),
	})
	// result.Shared lists the modules to inject into the sandbox.
*/
package resolver
