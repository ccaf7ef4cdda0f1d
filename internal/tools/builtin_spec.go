// Registration for the built-in filesystem/shell tool specs defined in
// spec.go. Split out from spec.go itself so the constructors stay free of
// import-cycle concerns with the registry's init-order requirements.
package tools

func init() {
	RegisterSpec(SpecEntry{Name: "shell", Constructor: NewShellToolSpec})
	RegisterSpec(SpecEntry{Name: "shell_command", Constructor: NewShellCommandToolSpec})
	RegisterSpec(SpecEntry{Name: "read_file", Constructor: NewReadFileToolSpec})
	RegisterSpec(SpecEntry{Name: "write_file", Constructor: NewWriteFileToolSpec})
	RegisterSpec(SpecEntry{Name: "list_dir", Constructor: NewListDirToolSpec})
	RegisterSpec(SpecEntry{Name: "grep_files", Constructor: NewGrepFilesToolSpec})
	RegisterSpec(SpecEntry{Name: "apply_patch", Constructor: NewApplyPatchToolSpec})
	RegisterSpec(SpecEntry{Name: "request_user_input", Constructor: NewRequestUserInputToolSpec})
}

// NewShellCommandToolSpec is the unified-exec-style alias for the shell tool,
// exposed under its own registry name for model families that expect a
// "shell_command" function rather than "shell".
func NewShellCommandToolSpec() ToolSpec {
	spec := NewShellToolSpec()
	spec.Name = "shell_command"
	return spec
}
