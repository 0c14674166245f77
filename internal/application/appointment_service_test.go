package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/persistence/memory"
	"github.com/example/appointment-scheduler/internal/testfixtures"
)

func seed(t *testing.T, store *memory.Storage, fixtures ...testfixtures.AppointmentFixture) {
	t.Helper()
	for _, f := range fixtures {
		if _, err := store.CreateAppointment(context.Background(), f.Appointment()); err != nil {
			t.Fatalf("seed %s failed: %v", f.ID, err)
		}
	}
}

func TestAppointmentService_ConfirmBatch(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("pending")),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("confirmed"),
			testfixtures.WithAppointmentStatus(appointment.StatusConfirmed),
		),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})

	result, err := svc.ConfirmBatch(context.Background(), adminPrincipal(), []string{"pending", "confirmed", "missing"})
	if err != nil {
		t.Fatalf("ConfirmBatch returned error: %v", err)
	}

	if len(result.Confirmed) != 1 || result.Confirmed[0] != "pending" {
		t.Fatalf("unexpected confirmed %v", result.Confirmed)
	}
	if len(result.AlreadyConfirmed) != 1 || result.AlreadyConfirmed[0] != "confirmed" {
		t.Fatalf("unexpected already confirmed %v", result.AlreadyConfirmed)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != "missing" || result.Failed[0].Reason != "not_found" {
		t.Fatalf("unexpected failures %+v", result.Failed)
	}

	stored, err := store.GetAppointment(context.Background(), testfixtures.TenantID, "pending")
	if err != nil || stored.Status != appointment.StatusConfirmed {
		t.Fatalf("expected pending appointment to be confirmed, got %v, %v", stored.Status, err)
	}

	if _, err := svc.ConfirmBatch(context.Background(), adminPrincipal(), nil); err == nil {
		t.Fatalf("expected empty batch to be rejected")
	}
}

func TestAppointmentService_ConfirmBatchReportsPerItemFailures(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("cancelled"),
			testfixtures.WithAppointmentStatus(appointment.StatusCancelled),
		),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("other-employee"),
			testfixtures.WithAppointmentEmployee("emp-2"),
		),
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("own")),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})

	principal := application.Principal{TenantID: testfixtures.TenantID, EmployeeID: testfixtures.EmployeeID, CanConfirm: true}
	result, err := svc.ConfirmBatch(context.Background(), principal, []string{"cancelled", "other-employee", "own"})
	if err != nil {
		t.Fatalf("ConfirmBatch returned error: %v", err)
	}
	if len(result.Confirmed) != 1 || len(result.Failed) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	reasons := map[string]string{}
	for _, f := range result.Failed {
		reasons[f.ID] = f.Reason
	}
	if reasons["cancelled"] != "invalid_transition" || reasons["other-employee"] != "unauthorized" {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestAppointmentService_TransitionStatus(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("by-customer"),
			testfixtures.WithAppointmentStatus(appointment.StatusCancelledByCustomer),
		),
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("pending")),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()

	_, err := svc.CancelAppointment(ctx, adminPrincipal(), "by-customer", appointment.StatusCancelled)
	var tErr *appointment.InvalidTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	stored, _ := store.GetAppointment(ctx, testfixtures.TenantID, "by-customer")
	if stored.Status != appointment.StatusCancelledByCustomer {
		t.Fatalf("expected status to be unchanged, got %s", stored.Status)
	}

	confirmed, err := svc.TransitionStatus(ctx, application.TransitionParams{
		Principal:     adminPrincipal(),
		AppointmentID: "pending",
		Target:        appointment.StatusConfirmed,
	})
	if err != nil || confirmed.Status != appointment.StatusConfirmed {
		t.Fatalf("expected confirmation, got %v, %v", confirmed.Status, err)
	}

	cancelled, err := svc.CancelAppointment(ctx, adminPrincipal(), "pending", appointment.StatusCancelledByAdmin)
	if err != nil || cancelled.Status != appointment.StatusCancelledByAdmin {
		t.Fatalf("expected admin cancellation, got %v, %v", cancelled.Status, err)
	}

	noCancel := application.Principal{TenantID: testfixtures.TenantID, CanViewAll: true, CanConfirm: true}
	if _, err := svc.CancelAppointment(ctx, noCancel, "pending", ""); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, application.TransitionParams{Principal: adminPrincipal(), AppointmentID: "pending", Target: "archived"}); err == nil {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestAppointmentService_SetClientConfirmation(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("pending")),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("cancelled"),
			testfixtures.WithAppointmentStatus(appointment.StatusCancelled),
		),
	)
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()
	params := application.ClientConfirmationParams{Principal: adminPrincipal(), AppointmentID: "pending", Confirmed: true}

	first, err := svc.SetClientConfirmation(ctx, params)
	if err != nil {
		t.Fatalf("SetClientConfirmation returned error: %v", err)
	}
	if !first.ClientConfirmed || first.ClientConfirmedAt == nil || first.Status != appointment.StatusPending {
		t.Fatalf("expected client flag without status change, got %+v", first)
	}

	factory.Clock.Advance(time.Hour)
	again, err := svc.SetClientConfirmation(ctx, params)
	if err != nil {
		t.Fatalf("SetClientConfirmation returned error: %v", err)
	}
	if !again.ClientConfirmedAt.Equal(*first.ClientConfirmedAt) {
		t.Fatalf("expected original timestamp to be kept")
	}

	params.Confirmed = false
	cleared, err := svc.SetClientConfirmation(ctx, params)
	if err != nil || cleared.ClientConfirmed || cleared.ClientConfirmedAt != nil {
		t.Fatalf("expected flag to be cleared, got %+v, %v", cleared, err)
	}

	_, err = svc.SetClientConfirmation(ctx, application.ClientConfirmationParams{Principal: adminPrincipal(), AppointmentID: "cancelled", Confirmed: true})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for cancelled appointment, got %v", err)
	}
}

func TestAppointmentService_UpdateAppointment(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("target")),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("neighbour"),
			testfixtures.WithAppointmentWindow(testfixtures.At(4, 11, 0), testfixtures.At(4, 12, 0)),
		),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("cancelled"),
			testfixtures.WithAppointmentStatus(appointment.StatusCancelled),
		),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()

	end := testfixtures.At(4, 11, 30)
	price := decimal.RequireFromString("70")
	notes := "extended"
	serviceID := testfixtures.ServiceID
	updated, warnings, err := svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{
		Principal:     adminPrincipal(),
		AppointmentID: "target",
		Patch: application.AppointmentPatch{
			End:         &end,
			CustomPrice: &price,
			Notes:       &notes,
			ServiceID:   &serviceID,
		},
	})
	if err != nil {
		t.Fatalf("UpdateAppointment returned error: %v", err)
	}
	if !updated.End.Equal(end) || updated.Notes != "extended" || !updated.TotalPrice().Equal(price) {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, ok := updated.Service.Resolved(); !ok {
		t.Fatalf("expected service to be resolved")
	}
	if len(warnings) != 1 || warnings[0].ConflictsWith != "neighbour" {
		t.Fatalf("expected one overlap warning, got %+v", warnings)
	}

	confirmed := appointment.StatusConfirmed
	patched, _, err := svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{
		Principal:     adminPrincipal(),
		AppointmentID: "target",
		Patch:         application.AppointmentPatch{Status: &confirmed},
	})
	if err != nil || patched.Status != appointment.StatusConfirmed {
		t.Fatalf("expected status patch to confirm, got %v, %v", patched.Status, err)
	}

	pending := appointment.StatusPending
	if _, _, err := svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{
		Principal:     adminPrincipal(),
		AppointmentID: "target",
		Patch:         application.AppointmentPatch{Status: &pending},
	}); err == nil {
		t.Fatalf("expected move back to pending to fail")
	}

	start := testfixtures.At(5, 9, 0)
	_, _, err = svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{
		Principal:     adminPrincipal(),
		AppointmentID: "cancelled",
		Patch:         application.AppointmentPatch{Start: &start, End: &end},
	})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	inverted := testfixtures.At(4, 8, 0)
	if _, _, err := svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{
		Principal:     adminPrincipal(),
		AppointmentID: "target",
		Patch:         application.AppointmentPatch{End: &inverted},
	}); !errors.As(err, &vErr) || vErr.FieldErrors["end"] == "" {
		t.Fatalf("expected end validation error, got %v", err)
	}

	readOnly := application.Principal{TenantID: testfixtures.TenantID, CanViewAll: true}
	if _, _, err := svc.UpdateAppointment(ctx, application.UpdateAppointmentParams{Principal: readOnly, AppointmentID: "target"}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAppointmentService_QueryAppointments(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("a"),
			testfixtures.WithAppointmentWindow(testfixtures.At(4, 9, 0), testfixtures.At(4, 10, 0)),
		),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("b"),
			testfixtures.WithAppointmentWindow(testfixtures.At(4, 9, 30), testfixtures.At(4, 10, 30)),
		),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("c"),
			testfixtures.WithAppointmentEmployee("emp-2"),
			testfixtures.WithAppointmentWindow(testfixtures.At(4, 9, 0), testfixtures.At(4, 10, 0)),
		),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("d"),
			testfixtures.WithAppointmentWindow(testfixtures.At(11, 9, 0), testfixtures.At(11, 10, 0)),
		),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()
	week := application.QueryParams{RangeStart: testfixtures.At(4, 0, 0), RangeEnd: testfixtures.At(11, 0, 0)}

	cases := []struct {
		name      string
		principal application.Principal
		employee  string
		want      []string
		warnings  int
		err       error
	}{
		{"view all", application.Principal{TenantID: testfixtures.TenantID, CanViewAll: true}, "", []string{"a", "c", "b"}, 1, nil},
		{"view all narrowed", application.Principal{TenantID: testfixtures.TenantID, CanViewAll: true}, "emp-2", []string{"c"}, 0, nil},
		{"own employee", application.Principal{TenantID: testfixtures.TenantID, EmployeeID: "emp-2"}, "", []string{"c"}, 0, nil},
		{"other employee", application.Principal{TenantID: testfixtures.TenantID, EmployeeID: "emp-2"}, testfixtures.EmployeeID, nil, 0, application.ErrUnauthorized},
		{"no scope", application.Principal{TenantID: testfixtures.TenantID}, "", nil, 0, application.ErrUnauthorized},
		{"no tenant", application.Principal{CanViewAll: true}, "", nil, 0, application.ErrUnauthorized},
	}

	for _, tc := range cases {
		params := week
		params.Principal = tc.principal
		params.EmployeeID = tc.employee
		result, err := svc.QueryAppointments(ctx, params)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: QueryAppointments returned error: %v", tc.name, err)
		}
		if len(result.Appointments) != len(tc.want) {
			t.Fatalf("%s: expected %v, got %d appointments", tc.name, tc.want, len(result.Appointments))
		}
		for i, id := range tc.want {
			if result.Appointments[i].ID != id {
				t.Fatalf("%s: position %d expected %s, got %s", tc.name, i, id, result.Appointments[i].ID)
			}
		}
		if len(result.Warnings) != tc.warnings {
			t.Fatalf("%s: expected %d warnings, got %+v", tc.name, tc.warnings, result.Warnings)
		}
	}

	params := week
	params.Principal = adminPrincipal()
	params.RangeEnd = params.RangeStart
	var vErr *application.ValidationError
	if _, err := svc.QueryAppointments(ctx, params); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty range, got %v", err)
	}
}

func TestAppointmentService_QueryWarningsFollowChanges(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store,
		testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("a")),
		testfixtures.NewAppointmentFixture(
			testfixtures.WithAppointmentID("b"),
			testfixtures.WithAppointmentWindow(testfixtures.At(4, 9, 30), testfixtures.At(4, 10, 30)),
		),
	)
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()
	params := application.QueryParams{Principal: adminPrincipal(), RangeStart: testfixtures.At(4, 0, 0), RangeEnd: testfixtures.At(5, 0, 0)}

	result, err := svc.QueryAppointments(ctx, params)
	if err != nil || len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %+v, %v", result.Warnings, err)
	}

	if _, err := svc.CancelAppointment(ctx, adminPrincipal(), "b", ""); err != nil {
		t.Fatalf("CancelAppointment returned error: %v", err)
	}
	result, err = svc.QueryAppointments(ctx, params)
	if err != nil || len(result.Warnings) != 0 {
		t.Fatalf("expected warnings to clear after cancellation, got %+v, %v", result.Warnings, err)
	}
}

func TestAppointmentService_GetAndDelete(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	seed(t, store, testfixtures.NewAppointmentFixture(testfixtures.WithAppointmentID("target")))
	svc := testfixtures.NewServiceFactory().NewAppointmentService(testfixtures.AppointmentServiceDeps{Appointments: store})
	ctx := context.Background()

	stranger := application.Principal{TenantID: testfixtures.TenantID, EmployeeID: "emp-2", CanCancel: true}
	if _, err := svc.GetAppointment(ctx, stranger, "target"); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.GetAppointment(ctx, adminPrincipal(), "missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteAppointment(ctx, stranger, "target"); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected delete to require an administrator, got %v", err)
	}
	if err := svc.DeleteAppointment(ctx, adminPrincipal(), "target"); err != nil {
		t.Fatalf("DeleteAppointment returned error: %v", err)
	}
	if _, err := store.GetAppointment(ctx, testfixtures.TenantID, "target"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected appointment to be gone, got %v", err)
	}
	if err := svc.DeleteAppointment(ctx, adminPrincipal(), "target"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestScopeFilter(t *testing.T) {
	t.Parallel()

	start, end := testfixtures.At(4, 0, 0), testfixtures.At(11, 0, 0)

	filter, err := application.ScopeFilter(application.Principal{TenantID: "t", EmployeeID: "emp-9"}, start, end)
	if err != nil || filter.EmployeeID != "emp-9" || filter.TenantID != "t" || !filter.RangeEnd.Equal(end) {
		t.Fatalf("unexpected restricted filter %+v, %v", filter, err)
	}

	filter, err = application.ScopeFilter(application.Principal{TenantID: "t", EmployeeID: "emp-9", CanViewAll: true}, start, end)
	if err != nil || filter.EmployeeID != "" {
		t.Fatalf("expected unrestricted filter, got %+v, %v", filter, err)
	}
}

func TestPrincipal_Allows(t *testing.T) {
	t.Parallel()

	staff := application.Principal{TenantID: "t", EmployeeID: "emp-1", CanCreate: true}
	if !staff.Allows(application.OpCreateSeries) || staff.Allows(application.OpConfirm) || staff.Allows(application.OpDelete) {
		t.Fatalf("unexpected permissions for staff principal")
	}
	if !(application.Principal{TenantID: "t", IsAdmin: true}).Allows(application.OpDelete) {
		t.Fatalf("expected administrators to delete")
	}
	if (application.Principal{IsAdmin: true}).Allows(application.OpQuery) {
		t.Fatalf("expected a tenant to be required")
	}
}
