package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapabilityGrants(t *testing.T) {
	require.True(t, Can(RoleEmployee, CapRequisitionCreate))
	require.False(t, Can(RoleEmployee, CapFinanceReview))
	require.False(t, Can(RoleEmployee, CapHODReview))

	require.True(t, Can(RoleHOD, CapHODReview))
	require.False(t, Can(RoleHOD, CapFinanceReview))
	require.False(t, Can(RoleHOD, CapRequisitionSplit))

	require.True(t, Can(RoleFinance, CapFinanceReview))
	require.True(t, Can(RoleFinance, CapRequisitionSplit))
	require.True(t, Can(RoleFinance, CapQuoteReview))
	require.True(t, Can(RoleFinance, CapInvoiceProgress))
	require.False(t, Can(RoleFinance, CapQuoteRespond))
	require.False(t, Can(RoleFinance, CapInvoiceUpload))

	require.True(t, Can(RoleSupplier, CapQuoteRespond))
	require.True(t, Can(RoleSupplier, CapInvoiceUpload))
	require.False(t, Can(RoleSupplier, CapRequisitionCreate))
	require.False(t, Can(RoleSupplier, CapQuoteReview))

	require.True(t, Can(RoleAdmin, CapInvitationManage))
}

func TestCanUnknownRole(t *testing.T) {
	require.False(t, Can(Role("VISITOR"), CapRequisitionView))
	require.False(t, Can(RoleFinance, Capability("nonsense")))
}
