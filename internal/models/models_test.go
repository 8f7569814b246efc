package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&User{}, &TeacherSalary{}))
	return db
}

func TestSuperuserIsStoredAsAdmin(t *testing.T) {
	db := openTestDB(t)

	user := User{Username: "root", Email: "root@example.com", PasswordHash: "x", Role: RoleStudent, IsSuperuser: true, IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	var stored User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.Equal(t, RoleAdmin, stored.Role)

	stored.Role = RoleTeacher
	require.NoError(t, db.Save(&stored).Error)
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.Equal(t, RoleAdmin, stored.Role)

	plain := User{Role: RoleStudent}
	require.False(t, plain.NormalizeRole())
	require.Equal(t, RoleStudent, plain.Role)
}

func TestSalaryTotalRecomputedOnSave(t *testing.T) {
	db := openTestDB(t)
	teacher := User{Username: "t", Email: "t@example.com", PasswordHash: "x", Role: RoleTeacher, IsActive: true}
	require.NoError(t, db.Create(&teacher).Error)

	salary := TeacherSalary{
		TeacherID:     teacher.ID,
		Month:         MonthStart(time.Date(2024, 3, 17, 22, 0, 0, 0, time.FixedZone("WIB", 7*3600))),
		BaseSalary:    decimal.NewFromInt(1000),
		Bonus:         decimal.NewFromInt(100),
		Deductions:    decimal.NewFromInt(50),
		TotalSalary:   decimal.NewFromInt(1),
		PaymentStatus: PaymentPending,
	}
	require.NoError(t, db.Create(&salary).Error)
	require.True(t, decimal.NewFromInt(1050).Equal(salary.TotalSalary))
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), salary.Month)
}

func TestExamStateAndDeadline(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	exam := Exam{StartTime: start, EndTime: start.Add(time.Hour), DurationMinutes: 30}

	require.Equal(t, ExamStateUpcoming, exam.StateAt(start.Add(-time.Second)))
	require.Equal(t, ExamStateActive, exam.StateAt(start))
	require.Equal(t, ExamStateActive, exam.StateAt(exam.EndTime))
	require.Equal(t, ExamStateEnded, exam.StateAt(exam.EndTime.Add(time.Second)))

	require.Equal(t, start.Add(40*time.Minute), exam.Deadline(start.Add(10*time.Minute)))
	require.Equal(t, exam.EndTime, exam.Deadline(start.Add(45*time.Minute)))
}

func TestCompletionPercentageAndAudience(t *testing.T) {
	require.Equal(t, 0, CompletionPercentage(0, 4))
	require.Equal(t, 25, CompletionPercentage(1, 4))
	require.Equal(t, 33, CompletionPercentage(1, 3))
	require.Equal(t, 100, CompletionPercentage(6, 4))
	require.Equal(t, 0, CompletionPercentage(2, 0))

	students := Notification{TargetAudience: AudienceStudents}
	require.True(t, students.Reaches(RoleStudent))
	require.False(t, students.Reaches(RoleTeacher))
	require.True(t, Notification{TargetAudience: AudienceAll}.Reaches(RoleAdmin))
	require.Equal(t, Role(""), ParseRole("superuser"))
	require.Equal(t, RoleTeacher, ParseRole(" Teacher "))
}
