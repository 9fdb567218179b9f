package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"subscription-service/internal/biz"
	"subscription-service/internal/constants"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeteringRepo(t *testing.T) (*meteringRepo, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	data, mock, mr := newTestData(t)
	repo := NewMeteringRepo(
		data,
		nil, // 无分布式锁（单测内无并发写）
		biz.NewTierCatalog(nil),
		log.DefaultLogger,
		NewSubscriberRepo(data, log.DefaultLogger),
		NewUsageRecordRepo(data, log.DefaultLogger),
	)
	return repo.(*meteringRepo), mock, mr
}

func TestCommitUsage_NoMQFallsBackToDB(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now().Truncate(time.Second)
	month := now.Format(constants.TimeFormatMonth)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow("sub-1", "u1", "", constants.TierStarter, false, 50000, 0, 0, now, now, now))
	// 月份一致，只有计数器自增，无清零
	mock.ExpectExec(`UPDATE "subscriber" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "usage_record"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &biz.UsageEvent{
		UserID:         "u1",
		ServiceType:    constants.ServiceTypeAudiobook,
		ResourceID:     "chapter-9",
		CharacterCount: 1000,
		CostCents:      2,
		WasOverage:     true,
		RecordedAt:     now,
		Month:          month,
	}
	recordID, err := repo.CommitUsage(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, recordID)
	assert.Equal(t, event.RecordID, recordID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUsage_MonthRolloverResetsCounters(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now().Truncate(time.Second)
	staleReset := now.AddDate(-1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow("sub-1", "u1", "", constants.TierStarter, false, 49000, 18000, 35, staleReset, staleReset, staleReset))
	// 重置时间不在事件月份：先清零所有滚动计数器
	mock.ExpectExec(`UPDATE "subscriber" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 再计入本次用量
	mock.ExpectExec(`UPDATE "subscriber" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "usage_record"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &biz.UsageEvent{
		UserID:         "u1",
		ServiceType:    constants.ServiceTypeTranslation,
		CharacterCount: 2000,
		CostCents:      5,
		WasOverage:     true,
		RecordedAt:     now,
		Month:          now.Format(constants.TimeFormatMonth),
	}
	_, err := repo.CommitUsage(context.Background(), event)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitUsage_UnknownSubscriberRollsBack(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns))
	mock.ExpectRollback()

	event := &biz.UsageEvent{
		UserID:         "ghost",
		ServiceType:    constants.ServiceTypeAudiobook,
		CharacterCount: 1000,
		CostCents:      2,
		WasOverage:     true,
		RecordedAt:     now,
		Month:          now.Format(constants.TimeFormatMonth),
	}
	_, err := repo.CommitUsage(context.Background(), event)
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileSubscriber_RepairsDrift(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now().Truncate(time.Second)
	month := now.Format(constants.TimeFormatMonth)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow("sub-1", "u1", "", constants.TierStarter, false, 100, 0, 0, now, now, now))
	mock.ExpectQuery(`SELECT "service_type".+FROM "usage_record" WHERE user_id = \$1 AND billing_month = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"service_type", "character_count", "cost_cents"}).
			AddRow(constants.ServiceTypeAudiobook, 150, 5))
	mock.ExpectExec(`UPDATE "subscriber" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReconcileSubscriber(context.Background(), "u1", month)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileSubscriber_InSyncNoUpdate(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now().Truncate(time.Second)
	month := now.Format(constants.TimeFormatMonth)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow("sub-1", "u1", "", constants.TierStarter, false, 150, 0, 5, now, now, now))
	mock.ExpectQuery(`SELECT "service_type".+FROM "usage_record" WHERE user_id = \$1 AND billing_month = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"service_type", "character_count", "cost_cents"}).
			AddRow(constants.ServiceTypeAudiobook, 150, 5))
	mock.ExpectCommit()

	err := repo.ReconcileSubscriber(context.Background(), "u1", month)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileSubscriber_OtherMonthSkipped(t *testing.T) {
	repo, mock, _ := newTestMeteringRepo(t)

	now := time.Now().Truncate(time.Second)
	staleReset := now.AddDate(-1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "subscriber" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow("sub-1", "u1", "", constants.TierStarter, false, 100, 0, 0, staleReset, staleReset, staleReset))
	mock.ExpectCommit()

	err := repo.ReconcileSubscriber(context.Background(), "u1", now.Format(constants.TimeFormatMonth))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaReservationScript(t *testing.T) {
	repo, _, mr := newTestMeteringRepo(t)
	ctx := context.Background()

	quotaKey := constants.RedisKeyQuota + "u1:audiobook:2026-08"

	// 缓存缺失
	res, err := repo.data.rdb.Eval(ctx, reserveScript, []string{quotaKey}, 3000).Result()
	require.NoError(t, err)
	vals := res.([]interface{})
	assert.Equal(t, int64(-1), vals[0])

	// 预占额度内部分
	require.NoError(t, mr.Set(quotaKey, "5000"))
	res, err = repo.data.rdb.Eval(ctx, reserveScript, []string{quotaKey}, 3000).Result()
	require.NoError(t, err)
	vals = res.([]interface{})
	assert.Equal(t, int64(1), vals[0])
	assert.Equal(t, int64(3000), vals[1])
	requireKeyEquals(t, mr, quotaKey, "2000")

	// 再请求 4000：只剩 2000 在额度内，其余为超额，不再预占
	res, err = repo.data.rdb.Eval(ctx, reserveScript, []string{quotaKey}, 4000).Result()
	require.NoError(t, err)
	vals = res.([]interface{})
	assert.Equal(t, int64(1), vals[0])
	assert.Equal(t, int64(2000), vals[1])
	requireKeyEquals(t, mr, quotaKey, "0")
}

func TestLoadQuotaCache(t *testing.T) {
	repo, _, mr := newTestMeteringRepo(t)
	ctx := context.Background()

	now := time.Now()
	month := now.Format(constants.TimeFormatMonth)
	sub := &biz.Subscriber{
		UserID:             "u1",
		Tier:               constants.TierPremium,
		AudiobookCharsUsed: 150000,
		MonthlyResetAt:     now,
	}
	payload, err := json.Marshal(sub)
	require.NoError(t, err)
	require.NoError(t, mr.Set(constants.RedisKeySubscriber+"u1", string(payload)))

	repo.loadQuotaCache(ctx, "u1", constants.ServiceTypeAudiobook, month)

	quotaKey := constants.RedisKeyQuota + "u1:" + constants.ServiceTypeAudiobook + ":" + month
	requireKeyEquals(t, mr, quotaKey, "50000")
}
