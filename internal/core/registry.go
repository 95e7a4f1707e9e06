package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// Module describes one business module: where its records live, which form
// configures them and how it appears in operation logs and exports.
type Module struct {
	Key        string
	FormKey    string
	Table      string
	LogModule  string
	ExportType export.ResourceType

	// NotExistKey is the message key used when a record is missing.
	NotExistKey string

	// HasSnapshot is set for modules that freeze their form per record.
	HasSnapshot bool
}

// Built-in modules.
var (
	ContractModule = Module{
		Key:         "contract",
		FormKey:     "contract",
		Table:       repository.TableContract,
		LogModule:   model.ModuleContract,
		ExportType:  export.TypeContract,
		NotExistKey: "contract.not.exist",
		HasSnapshot: true,
	}
	PaymentPlanModule = Module{
		Key:         "payment-plan",
		FormKey:     "contractPaymentPlan",
		Table:       repository.TablePaymentPlan,
		LogModule:   model.ModulePaymentPlan,
		ExportType:  export.TypeContractPaymentPlan,
		NotExistKey: "contract_payment_plan.not.exist",
	}
	QuotationModule = Module{
		Key:         "quotation",
		FormKey:     "quotation",
		Table:       repository.TableQuotation,
		LogModule:   model.ModuleQuotation,
		ExportType:  export.TypeOpportunityQuotation,
		NotExistKey: "opportunity.quotation.not.exist",
		HasSnapshot: true,
	}
	PriceModule = Module{
		Key:         "price",
		FormKey:     "price",
		Table:       repository.TablePrice,
		LogModule:   model.ModulePrice,
		ExportType:  export.TypeProductPrice,
		NotExistKey: "product.price.not.exist",
	}
)

var (
	registry   = make(map[string]Module)
	registryMu sync.RWMutex
)

func init() {
	for _, m := range []Module{ContractModule, PaymentPlanModule, QuotationModule, PriceModule} {
		Register(m)
	}
}

// Register adds a module to the registry.
// Panics if a module with the same key is already registered.
func Register(m Module) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[m.Key]; exists {
		panic(fmt.Sprintf("module already registered: %s", m.Key))
	}
	registry[m.Key] = m
}

// Lookup returns a module by key.
func Lookup(key string) (Module, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	m, ok := registry[key]
	return m, ok
}

// ByExportType returns the module exporting resources of type t.
func ByExportType(t export.ResourceType) (Module, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, m := range registry {
		if m.ExportType == t {
			return m, true
		}
	}
	return Module{}, false
}

// Modules returns all registered modules sorted by key.
func Modules() []Module {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Module, 0, len(registry))
	for _, m := range registry {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
