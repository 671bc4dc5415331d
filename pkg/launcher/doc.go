// Package launcher locates, spawns and runs local inference backend
// executables.
//
// # Locating executables
//
// A BackendDescriptor names the directories a backend may be installed in,
// relative to any ancestor of the running application, and the executable
// and shared-library names it ships per platform:
//
//	locator, err := launcher.NewLocator()
//	if err != nil {
//	    return err
//	}
//	exe, err := locator.Resolve(desc)
//	if launcher.IsErrorCode(err, launcher.ErrorCodeResolutionFailed) {
//	    for _, p := range launcher.CheckedPaths(err) {
//	        fmt.Println("checked", p)
//	    }
//	}
//
// The same layout works for a development checkout (src-tauri/bin/<x>),
// a bundled release (bin/<x>) and packaged resources (resources/bin/<x>).
//
// # Long-running processes
//
// ProcessLauncher.Launch starts the executable in its own directory and
// returns a ManagedProcess. With StreamPipe both output streams are copied
// line by line into a DiagnosticLog:
//
//	diag, _ := launcher.OpenDiagnosticLog("")
//	p, err := launcher.NewProcessLauncher(diag).Launch(ctx, exe, args, launcher.StreamPipe)
//	...
//	_ = p.Terminate()
//	_ = p.Wait(ctx)
//
// # One-shot invocations
//
// Invoker.Run checks required input files, runs the executable to
// completion and returns its captured output. Failures carry stdout and
// stderr, available through CapturedOutput.
//
// # Errors
//
// Every failure is a *LauncherError with an ErrorCode, context and an
// actionable suggestion. Use IsErrorCode to classify wrapped errors.
package launcher
