// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: open, remove, rename and stat
//   - [LocalFS]: production implementation on the os package
//   - [FaultyFS]: test wrapper that injects write, sync and close failures
//
// Production code uses fs.Default:
//
//	err := fs.WriteAtomic(fs.Default, "sketch.bin", func(w io.Writer) error { ... })
//
// Tests inject a [FaultyFS] to simulate a full disk:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.SetLimit(1024) // fail after 1KB written
//
// The package does not take context.Context. Local filesystem calls are
// short and not interruptible at the syscall level.
package fs
