// internal/locker/zookeeper.go
package locker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/storefront/inventory_locks" // 所有库存锁的根节点

// ZooKeeper 是多节点部署下的 KeyedLocker 实现。
// 每个资源 key 对应一个 znode 路径，竞争者在其下创建临时顺序节点，
// 最小序号者持锁，其余监听前一个节点，构成公平队列。
type ZooKeeper struct {
	conn *zk.Conn
}

// NewZooKeeper 连接到 ZooKeeper 并确保锁根节点存在。
func NewZooKeeper(servers []string) (*ZooKeeper, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	l := &ZooKeeper{conn: conn}
	if err := l.ensurePath(lockRoot); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

// ensurePath 逐级创建持久节点，已存在则忽略。
func (l *ZooKeeper) ensurePath(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, p := range parts {
		current += "/" + p
		_, err := l.conn.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create lock path node %s: %w", current, err)
		}
	}
	return nil
}

func (l *ZooKeeper) Lock(ctx context.Context, key string) (func(), error) {
	lockPath := lockRoot + "/" + key
	if err := l.ensurePath(lockPath); err != nil {
		return nil, err
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}

	release := func() {
		if err := l.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
			// 临时节点会随会话消失，删除失败只影响锁释放的及时性
		}
	}

	for {
		// 2. 获取锁路径下的所有子节点
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(nodePath, lockPath+"/")
		if myNodeName == children[0] {
			return release, nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			release()
			return nil, errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := lockPath + "/" + children[prevNodeIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			release()
			return nil, fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			// 前一个节点在设置 Watcher 前刚好被删除，重新竞争
			continue
		}

		// 阻塞等待前一个节点被删除，或调用方放弃
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
}

// Close 断开 ZooKeeper 连接，会话上的所有临时节点随之消失。
func (l *ZooKeeper) Close() {
	l.conn.Close()
}
