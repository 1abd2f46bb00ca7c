/*
Package deptree models the dependency graph of a plugin's entry module.

# Overview

A Tree is singly-rooted at the entry module and deduplicated by module name:
the first node created for a name is reused for every later reference, so a
diamond (or a cycle) is represented by structural sharing rather than by
duplicate nodes.

Each node carries a resolution status:

  - Unresolved: discovered, not yet inspected
  - Processing: claimed for inspection, waiting on a source fetch
  - Resolved:   terminal

# Traversal

TakeNextUnresolved walks the tree pre-order (parent before children, children
in insertion order), claims the first Unresolved node by flipping it to
Processing, and returns it. A resolver drives discovery by calling it in a
loop until nothing is claimable.

# Ownership

Nodes live in the tree's node table. The parent link is a NodeID into that
table, not a pointer, so the tree owns every node exactly once.

A Tree is not safe for concurrent use; callers mutate it from one goroutine.
*/
package deptree
