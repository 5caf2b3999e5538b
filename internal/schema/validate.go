package schema

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
)

// acceptedVersions are the MTConnectDevices schema versions this
// agent will insert (spec.md §6 / SPEC_FULL.md §4.2).
var acceptedVersions = map[string]bool{"1.1": true, "1.2": true, "1.3": true}

var versionAttrRe = regexp.MustCompile(`xmlns:m="urn:mtconnect\.org:MTConnectDevices:(\d+\.\d+)"`)

// Validator shells out to an externally configured XSD validator
// (e.g. `xmllint --noout --schema devices.xsd`) ahead of InsertSchema.
// The validator itself is an out-of-scope collaborator (spec.md §1/§6):
// this type only extracts the version attribute and invokes whatever
// command is configured.
type Validator struct {
	// Command is the validator binary, e.g. "xmllint". Empty disables
	// validation (the version check still runs).
	Command string
	// Args are appended ahead of the temp file path, e.g.
	// []string{"--noout", "--schema", "devices.xsd"}.
	Args []string
}

func NewValidator(command string, args []string) *Validator {
	return &Validator{Command: command, Args: args}
}

// ValidateDeviceXML writes raw to a temp file, checks its
// MTConnectDevices version attribute, and (if a validator command is
// configured) runs it against the temp file. It returns the extracted
// version on success.
func (v *Validator) ValidateDeviceXML(raw []byte) (string, error) {
	version := versionAttrRe.FindStringSubmatch(string(raw))
	if version == nil {
		return "", fmt.Errorf("schema: device XML missing xmlns:m MTConnectDevices version attribute")
	}
	ver := version[1]
	if !acceptedVersions[ver] {
		return "", fmt.Errorf("schema: unsupported MTConnectDevices version %q", ver)
	}

	f, err := os.CreateTemp("", "mtconnect-device-*.xml")
	if err != nil {
		return "", fmt.Errorf("schema: creating temp file for validation: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return "", fmt.Errorf("schema: writing temp file for validation: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("schema: closing temp file for validation: %w", err)
	}

	if v.Command == "" {
		return ver, nil
	}

	args := append(append([]string{}, v.Args...), f.Name())
	cmd := exec.Command(v.Command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("schema: device XML failed validation: %w: %s", err, out)
	}
	return ver, nil
}
