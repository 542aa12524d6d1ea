package evolution

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// artifactExtension returns the file extension an artifact of kind should
// be written with.
func artifactExtension(kind models.CapabilityKind) string {
	switch kind {
	case models.KindExternalAPI:
		return ".py"
	case models.KindRhaiScript:
		return ".rhai"
	case models.KindDynamicLib:
		return ".go"
	default:
		return ".sh"
	}
}

// writeArtifact persists generated source to artifactsDir under a name
// derived from the evolution record id, returning the artifact path.
func writeArtifact(artifactsDir string, r *models.EvolutionRecord, source string) (string, error) {
	path := filepath.Join(artifactsDir, r.ID+artifactExtension(r.Kind))
	if err := os.WriteFile(path, []byte(source), 0o755); err != nil {
		return "", fmt.Errorf("evolution: write artifact: %w", err)
	}
	return path, nil
}

// compileArtifact performs the kind-specific syntax/compile check for a
// freshly written artifact, returning the compiled output path (which for
// scripted kinds is the source path itself) and any compiler diagnostic.
func compileArtifact(ctx context.Context, artifactsDir string, r *models.EvolutionRecord) (compiledPath string, compileOutput string, err error) {
	path := r.ArtifactPath
	switch r.Kind {
	case models.KindProcess, models.KindBuiltIn:
		out, err := exec.CommandContext(ctx, "bash", "-n", path).CombinedOutput()
		if err != nil {
			return "", string(out), fmt.Errorf("evolution: bash syntax check failed: %w", err)
		}
		return path, "bash -n: ok", nil

	case models.KindExternalAPI:
		if _, lookErr := exec.LookPath("python3"); lookErr != nil {
			return path, "python3 not found, skipping compile check", nil
		}
		out, err := exec.CommandContext(ctx, "python3", "-m", "py_compile", path).CombinedOutput()
		if err != nil {
			return "", string(out), fmt.Errorf("evolution: python compile check failed: %w", err)
		}
		return path, "py_compile: ok", nil

	case models.KindRhaiScript:
		source, readErr := os.ReadFile(path)
		if readErr != nil {
			return "", "", fmt.Errorf("evolution: read rhai artifact: %w", readErr)
		}
		if err := validateRhaiStructure(string(source)); err != nil {
			return "", err.Error(), err
		}
		return path, "rhai structural check: ok", nil

	case models.KindDynamicLib:
		soPath := filepath.Join(artifactsDir, r.ID+".so")
		out, err := exec.CommandContext(ctx, "go", "build", "-buildmode=plugin", "-o", soPath, path).CombinedOutput()
		if err != nil {
			return "", string(out), fmt.Errorf("evolution: plugin compile failed: %w", err)
		}
		return soPath, "go build -buildmode=plugin: ok", nil

	default:
		return "", "", fmt.Errorf("evolution: unknown capability kind %q", r.Kind)
	}
}

// validateArtifact runs the post-compile checks for a compiled artifact and
// returns the aggregated result. Kind-specific checks beyond the shared
// existence/size checks are dry-run invocations bounded by a short timeout
// so a hung generated script cannot stall the evolution loop.
func validateArtifact(ctx context.Context, r *models.EvolutionRecord) *models.ValidationResult {
	var checks []models.ValidationCheck
	checks = append(checks, checkFileExists(r.ArtifactPath))
	checks = append(checks, checkFileNonEmpty(r.ArtifactPath))

	dryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch r.Kind {
	case models.KindProcess, models.KindBuiltIn:
		checks = append(checks, dryRunProcess(dryCtx, r.ArtifactPath))
	case models.KindExternalAPI:
		checks = append(checks, dryRunExternalAPI(dryCtx, r.ArtifactPath))
	case models.KindRhaiScript:
		// Structural validation already ran at compile time; no process to
		// dry-run for an in-process interpreter stand-in.
	case models.KindDynamicLib:
		checks = append(checks, checkPluginLoads(r.ArtifactPath))
	}

	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
			break
		}
	}
	return &models.ValidationResult{Passed: passed, Checks: checks}
}

func checkFileExists(path string) models.ValidationCheck {
	if _, err := os.Stat(path); err != nil {
		return models.ValidationCheck{Name: "file_exists", Passed: false, Detail: err.Error()}
	}
	return models.ValidationCheck{Name: "file_exists", Passed: true}
}

func checkFileNonEmpty(path string) models.ValidationCheck {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return models.ValidationCheck{Name: "file_non_empty", Passed: false, Detail: "artifact is empty or unreadable"}
	}
	return models.ValidationCheck{Name: "file_non_empty", Passed: true}
}

func dryRunProcess(ctx context.Context, path string) models.ValidationCheck {
	cmd := exec.CommandContext(ctx, "bash", path)
	cmd.Stdin = stringReader("{}")
	out, err := cmd.Output()
	if err != nil {
		return models.ValidationCheck{Name: "dry_run", Passed: false, Detail: fmt.Sprintf("exit: %v", err)}
	}
	if !looksLikeJSON(out) {
		return models.ValidationCheck{Name: "dry_run", Passed: false, Detail: "stdout was not valid JSON"}
	}
	return models.ValidationCheck{Name: "dry_run", Passed: true}
}

func dryRunExternalAPI(ctx context.Context, path string) models.ValidationCheck {
	cmd := exec.CommandContext(ctx, "python3", path)
	cmd.Env = append(os.Environ(), "CAPABILITY_INPUT={}")
	out, err := cmd.Output()
	if err != nil {
		return models.ValidationCheck{Name: "dry_run", Passed: false, Detail: fmt.Sprintf("exit: %v", err)}
	}
	if !looksLikeJSON(out) {
		return models.ValidationCheck{Name: "dry_run", Passed: false, Detail: "stdout was not valid JSON"}
	}
	return models.ValidationCheck{Name: "dry_run", Passed: true}
}

func checkPluginLoads(soPath string) models.ValidationCheck {
	cap, err := loadDynamicLibrary(soPath)
	if err != nil {
		return models.ValidationCheck{Name: "plugin_loads", Passed: false, Detail: err.Error()}
	}
	_, err = cap.Invoke([]byte("{}"))
	if err != nil {
		return models.ValidationCheck{Name: "plugin_loads", Passed: false, Detail: "Invoke({}) failed: " + err.Error()}
	}
	return models.ValidationCheck{Name: "plugin_loads", Passed: true}
}
