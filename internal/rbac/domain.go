package rbac

// Role names the coarse application roles. An organization may have zero or
// more users per role; HOD in particular is optional.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleHOD      Role = "HOD"
	RoleFinance  Role = "FINANCE"
	RoleSupplier Role = "SUPPLIER"
	RoleAdmin    Role = "ADMIN"
)

// Capability names a single workflow operation a role may perform. Services
// check exactly one capability at the operation boundary instead of comparing
// role strings inline.
type Capability string

const (
	CapRequisitionCreate Capability = "requisition.create"
	CapRequisitionView   Capability = "requisition.view"
	CapHODReview         Capability = "requisition.hod_review"
	CapFinanceReview     Capability = "requisition.finance_review"
	CapRequisitionSplit  Capability = "requisition.split"
	CapQuoteRequest      Capability = "quotation.request"
	CapQuoteRespond      Capability = "quotation.respond"
	CapQuoteReview       Capability = "quotation.review"
	CapInvoiceUpload     Capability = "invoice.upload"
	CapInvoiceProgress   Capability = "invoice.progress"
	CapMasterdataManage  Capability = "masterdata.manage"
	CapInvitationManage  Capability = "invitation.manage"
	CapMessagePost       Capability = "message.post"
)

var grants = map[Role]map[Capability]struct{}{
	RoleEmployee: capSet(
		CapRequisitionCreate,
		CapRequisitionView,
		CapMessagePost,
	),
	RoleHOD: capSet(
		CapRequisitionCreate,
		CapRequisitionView,
		CapHODReview,
		CapMessagePost,
	),
	RoleFinance: capSet(
		CapRequisitionCreate,
		CapRequisitionView,
		CapFinanceReview,
		CapRequisitionSplit,
		CapQuoteRequest,
		CapQuoteReview,
		CapInvoiceProgress,
		CapMasterdataManage,
		CapInvitationManage,
		CapMessagePost,
	),
	RoleSupplier: capSet(
		CapQuoteRespond,
		CapInvoiceUpload,
		CapMessagePost,
	),
	RoleAdmin: capSet(
		CapRequisitionCreate,
		CapRequisitionView,
		CapHODReview,
		CapFinanceReview,
		CapRequisitionSplit,
		CapQuoteRequest,
		CapQuoteReview,
		CapInvoiceProgress,
		CapMasterdataManage,
		CapInvitationManage,
		CapMessagePost,
	),
}

func capSet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the role is granted the capability.
func Can(role Role, cap Capability) bool {
	set, ok := grants[role]
	if !ok {
		return false
	}
	_, ok = set[cap]
	return ok
}
