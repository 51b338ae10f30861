package blueprint_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/storage/memory"
)

// Static error variables for BDD steps
var (
	errModuleNotLoaded     = errors.New("module is not loaded")
	errUnexpectedStatus    = errors.New("unexpected module status")
	errUnexpectedSequence  = errors.New("unexpected status sequence")
	errExpectedFailure     = errors.New("expected activation to fail")
	errUnexpectedFailure   = errors.New("expected activation to succeed")
	errUnexpectedBatch     = errors.New("unexpected batch result")
	errUnexpectedEnabled   = errors.New("unexpected enabled flag")
	errUnexpectedAudit     = errors.New("unexpected audit entry")
	errLastErrorMismatched = errors.New("last error does not match")
)

// BDDTestContext holds the state of one scenario.
type BDDTestContext struct {
	store     *memory.Store
	audit     *memory.AuditLog
	manager   *blueprint.ModuleManager
	sequences map[string][]blueprint.ModuleStatus
	unwatch   func()
	lastErr   error
	batch     blueprint.BatchResult
}

func (c *BDDTestContext) reset() {
	if c.unwatch != nil {
		c.unwatch()
	}
	*c = BDDTestContext{sequences: make(map[string][]blueprint.ModuleStatus)}
}

func (c *BDDTestContext) aBlueprintIsLoaded(id string) error {
	c.store = memory.New()
	c.audit = memory.NewAuditLog()
	c.manager = blueprint.NewModuleManager(c.store, c.audit, newTestFactory(&echoLog{seen: map[string][]string{}}))
	if err := c.manager.LoadModules(context.Background(), id); err != nil {
		return err
	}
	c.unwatch = c.manager.Modules().Subscribe(func(list []blueprint.ModuleDescriptor) {
		for _, d := range list {
			seq := c.sequences[d.ID]
			if len(seq) == 0 || seq[len(seq)-1] != d.Status {
				c.sequences[d.ID] = append(seq, d.Status)
			}
		}
	})
	return nil
}

func (c *BDDTestContext) register(id, moduleType string, enabled bool, deps ...string) error {
	_, err := c.manager.RegisterModule(context.Background(), blueprint.CreateModuleData{
		ID: id, Name: id, Version: "1.0.0", ModuleType: blueprint.ModuleType(moduleType), Dependencies: deps, Enabled: enabled,
	})
	return err
}

func (c *BDDTestContext) anEnabledModule(id, moduleType string) error {
	return c.register(id, moduleType, true)
}

func (c *BDDTestContext) anEnabledModuleDependingOn(id, moduleType, dep string) error {
	return c.register(id, moduleType, true, dep)
}

func (c *BDDTestContext) aDisabledModule(id, moduleType string) error {
	return c.register(id, moduleType, false)
}

func (c *BDDTestContext) iActivateTheBlueprint() error {
	report, err := c.manager.Activate(context.Background())
	c.lastErr = err
	if err == nil && len(report.Failed) > 0 {
		c.lastErr = report.Failed[report.FailedIDs()[0]]
	}
	return nil
}

func (c *BDDTestContext) iDeactivateTheBlueprint() error {
	return c.manager.Deactivate(context.Background())
}

func (c *BDDTestContext) iActivateModule(id string) error {
	c.lastErr = c.manager.ActivateModule(context.Background(), id)
	return nil
}

func (c *BDDTestContext) moduleShouldBe(id, status string) error {
	desc, ok := c.manager.LookupModule(id)
	if !ok {
		return fmt.Errorf("%w: %s", errModuleNotLoaded, id)
	}
	if string(desc.Status) != status {
		return fmt.Errorf("%w: %s is %s, want %s", errUnexpectedStatus, id, desc.Status, status)
	}
	return nil
}

func (c *BDDTestContext) moduleShouldBePersistedAs(id, status string) error {
	stored, ok := c.store.Get(c.manager.BlueprintID(), id)
	if !ok {
		return fmt.Errorf("%w: %s", errModuleNotLoaded, id)
	}
	if string(stored.Status) != status {
		return fmt.Errorf("%w: %s persisted as %s, want %s", errUnexpectedStatus, id, stored.Status, status)
	}
	return nil
}

func (c *BDDTestContext) moduleShouldHavePassedThrough(id, sequence string) error {
	var got []string
	for _, s := range c.sequences[id] {
		got = append(got, string(s))
	}
	if want := splitList(sequence); !slices.Equal(got, want) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedSequence, got, want)
	}
	return nil
}

func (c *BDDTestContext) theActivationShouldFailMentioning(text string) error {
	if c.lastErr == nil {
		return errExpectedFailure
	}
	if !strings.Contains(c.lastErr.Error(), text) {
		return fmt.Errorf("%w: %q does not mention %q", errExpectedFailure, c.lastErr, text)
	}
	return nil
}

func (c *BDDTestContext) theActivationShouldSucceed() error {
	if c.lastErr != nil {
		return fmt.Errorf("%w: %v", errUnexpectedFailure, c.lastErr)
	}
	return nil
}

func (c *BDDTestContext) theLastErrorShouldMention(text string) error {
	if last := c.manager.LastError().Get(); !strings.Contains(last, text) {
		return fmt.Errorf("%w: %q", errLastErrorMismatched, last)
	}
	return nil
}

func (c *BDDTestContext) persistingModuleFails(id string) error {
	c.store.FailOn(memory.OpBatch, id, errors.New("write conflict"))
	return nil
}

func (c *BDDTestContext) iEnableModulesInOneBatch(ids string) error {
	result, err := c.manager.BatchUpdateEnabled(context.Background(), splitList(ids), true)
	c.batch = result
	return err
}

func (c *BDDTestContext) theBatchShouldReport(success, failed string) error {
	if !slices.Equal(c.batch.Success, splitList(success)) || !slices.Equal(c.batch.Failed, splitList(failed)) {
		return fmt.Errorf("%w: %+v", errUnexpectedBatch, c.batch)
	}
	return nil
}

func (c *BDDTestContext) moduleShouldBeEnabled(id string) error {
	return c.expectEnabled(id, true)
}

func (c *BDDTestContext) moduleShouldBeDisabled(id string) error {
	return c.expectEnabled(id, false)
}

func (c *BDDTestContext) expectEnabled(id string, want bool) error {
	desc, ok := c.manager.LookupModule(id)
	if !ok {
		return fmt.Errorf("%w: %s", errModuleNotLoaded, id)
	}
	if desc.Enabled != want {
		return fmt.Errorf("%w: %s enabled=%t", errUnexpectedEnabled, id, desc.Enabled)
	}
	return nil
}

func (c *BDDTestContext) theLastAuditEntryShouldHaveStatus(status string) error {
	last, ok := c.audit.Last()
	if !ok || string(last.Status) != status {
		return fmt.Errorf("%w: %+v", errUnexpectedAudit, last)
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// InitializeScenario registers the module manager steps
func InitializeScenario(ctx *godog.ScenarioContext) {
	testCtx := &BDDTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		testCtx.reset()
		return ctx, nil
	})

	// Setup steps
	ctx.Step(`^a blueprint "([^"]*)" is loaded$`, testCtx.aBlueprintIsLoaded)
	ctx.Step(`^an enabled module "([^"]*)" of type "([^"]*)"$`, testCtx.anEnabledModule)
	ctx.Step(`^an enabled module "([^"]*)" of type "([^"]*)" depending on "([^"]*)"$`, testCtx.anEnabledModuleDependingOn)
	ctx.Step(`^a disabled module "([^"]*)" of type "([^"]*)"$`, testCtx.aDisabledModule)
	ctx.Step(`^I register an enabled module "([^"]*)" of type "([^"]*)"$`, testCtx.anEnabledModule)
	ctx.Step(`^persisting module "([^"]*)" fails$`, testCtx.persistingModuleFails)

	// Lifecycle steps
	ctx.Step(`^I activate the blueprint$`, testCtx.iActivateTheBlueprint)
	ctx.Step(`^I deactivate the blueprint$`, testCtx.iDeactivateTheBlueprint)
	ctx.Step(`^I activate module "([^"]*)"$`, testCtx.iActivateModule)
	ctx.Step(`^module "([^"]*)" should be "([^"]*)"$`, testCtx.moduleShouldBe)
	ctx.Step(`^module "([^"]*)" should be persisted as "([^"]*)"$`, testCtx.moduleShouldBePersistedAs)
	ctx.Step(`^module "([^"]*)" should have passed through "([^"]*)"$`, testCtx.moduleShouldHavePassedThrough)
	ctx.Step(`^the activation should fail mentioning "([^"]*)"$`, testCtx.theActivationShouldFailMentioning)
	ctx.Step(`^the activation should succeed$`, testCtx.theActivationShouldSucceed)
	ctx.Step(`^the last error should mention "([^"]*)"$`, testCtx.theLastErrorShouldMention)

	// Batch steps
	ctx.Step(`^I enable modules "([^"]*)" in one batch$`, testCtx.iEnableModulesInOneBatch)
	ctx.Step(`^the batch should report success "([^"]*)" and failure "([^"]*)"$`, testCtx.theBatchShouldReport)
	ctx.Step(`^module "([^"]*)" should be enabled$`, testCtx.moduleShouldBeEnabled)
	ctx.Step(`^module "([^"]*)" should be disabled$`, testCtx.moduleShouldBeDisabled)
	ctx.Step(`^the last audit entry should have status "([^"]*)"$`, testCtx.theLastAuditEntryShouldHaveStatus)
}

func runFeature(t *testing.T, path string) {
	t.Helper()
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{path},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// TestModuleLifecycleFeature runs the BDD tests for the module lifecycle
func TestModuleLifecycleFeature(t *testing.T) {
	runFeature(t, "features/module_lifecycle.feature")
}

// TestDependencyValidationFeature runs the BDD tests for dependency validation
func TestDependencyValidationFeature(t *testing.T) {
	runFeature(t, "features/dependency_validation.feature")
}

// TestBatchEnableFeature runs the BDD tests for batch enable
func TestBatchEnableFeature(t *testing.T) {
	runFeature(t, "features/batch_enable.feature")
}
