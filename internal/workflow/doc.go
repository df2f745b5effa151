// Package workflow selects the builder capability for a function runtime.
//
// The builder inside the sandbox dispatches on a (language, dependency
// manager, application framework) triple. This package maps a runtime
// identifier to that triple together with the manifest file the builder
// reads. Most runtimes have exactly one workflow; java8 chooses between
// Gradle and Maven depending on which manifest is present in the code
// directory.
package workflow
