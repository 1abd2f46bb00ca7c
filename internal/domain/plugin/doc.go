// Package plugin starts plugins in their own sandboxes.
//
// Manager is the entry point: StartPlugins starts a list of plugins, each at
// most once. For every new plugin the Provisioner fetches the optional
// require.config.json from the plugin's context path, creates and registers
// a sandbox, resolves the entry module's dependencies against the global
// namespace, and injects the shared ones. The manager then loads the entry
// module and calls its init function.
//
// Where a plugin's modules live and which module is its entry are decided by
// ContextPathStrategy and EntryModuleStrategy; the defaults are
// BaseURLContextPath and DefaultEntryModule.
package plugin
