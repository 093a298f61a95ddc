package saga

import (
	"fmt"

	"github.com/shaiso/Cargomata/internal/adapter"
	"github.com/shaiso/Cargomata/internal/domain"
)

// Имена шагов саги. Попадают в события, журнал компенсаций и FailureDetail.
const (
	StepVerifyContract  = "verify_contract"
	StepRegisterPackage = "register_package"
	StepOptimizeRoute   = "optimize_route"
)

// step — один шаг саги.
//
// done определяет по персистентному состоянию заказа, выполнен ли шаг —
// на этом построено возобновление после рестарта: выполненные шаги
// пропускаются, downstream повторно не вызывается.
type step struct {
	name    string
	service domain.ServiceID

	done  func(o *domain.Order) bool
	apply func(o *domain.Order, res *adapter.Result) error
}

// sagaSteps — фиксированная последовательность шагов.
// Порядок значим: компенсации выполняются в обратном порядке.
var sagaSteps = []step{
	{
		name:    StepVerifyContract,
		service: domain.ServiceContractVerification,
		done:    func(o *domain.Order) bool { return o.CMSVerifiedAt != nil },
		apply: func(o *domain.Order, res *adapter.Result) error {
			if res == nil || res.Contract == nil {
				return fmt.Errorf("contract-verification returned no contract result")
			}
			o.MarkCMSVerified(res.Contract)
			return nil
		},
	},
	{
		name:    StepRegisterPackage,
		service: domain.ServicePackageRegistration,
		done:    func(o *domain.Order) bool { return o.WMSRegisteredAt != nil },
		apply: func(o *domain.Order, res *adapter.Result) error {
			if res == nil || res.Warehouse == nil {
				return fmt.Errorf("package-registration returned no warehouse result")
			}
			o.MarkWMSRegistered(res.Warehouse)
			return nil
		},
	},
	{
		name:    StepOptimizeRoute,
		service: domain.ServiceRouteOptimization,
		done:    func(o *domain.Order) bool { return o.ROSOptimizedAt != nil },
		apply: func(o *domain.Order, res *adapter.Result) error {
			if res == nil || res.Route == nil {
				return fmt.Errorf("route-optimization returned no route result")
			}
			o.MarkROSOptimized(res.Route)
			return nil
		},
	},
}
